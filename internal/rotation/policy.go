// Package rotation decides what gets published and when: working hours,
// daily per-language quotas and the primary/secondary language rotation.
package rotation

import (
	"time"

	"github.com/deusflow/newsdesk/internal/news"
)

// Skip reasons reported in Result.Reason. The first two come from Gate.
const (
	SkipOutsideHours   = "outside_work_hours"
	SkipQuotaExhausted = "quota_exhausted"
	SkipRewriteBudget  = "rewrite_budget_exhausted"
	SkipCancelled      = "cancelled"
)

type Policy struct {
	Location             *time.Location
	WorkHoursStart       int // first local hour that publishes
	WorkHoursEnd         int // first local hour that does not
	Primary              string
	Secondary            string
	SecondaryMinInterval time.Duration
	// Quotas caps publications per local day. A language with no entry has
	// no room.
	Quotas map[string]int
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// DayStart is local midnight of now's day; quotas count from it.
func (p Policy) DayStart(now time.Time) time.Time {
	local := now.In(p.loc())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc())
}

func (p Policy) InWorkHours(now time.Time) bool {
	h := now.In(p.loc()).Hour()
	if p.WorkHoursStart <= p.WorkHoursEnd {
		return h >= p.WorkHoursStart && h < p.WorkHoursEnd
	}
	// window crossing midnight, e.g. 20-02
	return h >= p.WorkHoursStart || h < p.WorkHoursEnd
}

// HasRoom reports whether lang may publish again today.
func (p Policy) HasRoom(lang string, published map[string]int) bool {
	quota, ok := p.Quotas[lang]
	return ok && published[lang] < quota
}

// Gate returns "" when a cycle may publish, otherwise the skip reason.
// Quotas only close the gate when every language is exhausted.
func (p Policy) Gate(now time.Time, published map[string]int) string {
	if !p.InWorkHours(now) {
		return SkipOutsideHours
	}
	for lang := range p.Quotas {
		if p.HasRoom(lang, published) {
			return ""
		}
	}
	return SkipQuotaExhausted
}

// Target picks the language this cycle should publish. The secondary
// language goes first when its interval has elapsed; otherwise the primary,
// and the secondary again when the primary is exhausted.
func (p Policy) Target(now time.Time, published map[string]int, lastSecondary time.Time, hasLast bool) string {
	secondaryRoom := p.Secondary != "" && p.HasRoom(p.Secondary, published)
	if secondaryRoom && (!hasLast || now.Sub(lastSecondary) >= p.SecondaryMinInterval) {
		return p.Secondary
	}
	if p.HasRoom(p.Primary, published) {
		return p.Primary
	}
	if secondaryRoom {
		return p.Secondary
	}
	return p.Primary
}

// SelectDraft returns the oldest draft in the target language, falling
// back to the oldest draft of any language with quota room. pending must be
// ordered oldest first.
func (p Policy) SelectDraft(pending []news.Item, target string, published map[string]int) (news.Item, bool) {
	for _, it := range pending {
		if it.Language == target && p.HasRoom(target, published) {
			return it, true
		}
	}
	for _, it := range pending {
		if p.HasRoom(it.Language, published) {
			return it, true
		}
	}
	return news.Item{}, false
}
