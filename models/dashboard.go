package models

// Dashboard is the subset of the rewards dashboard state the runner consumes.
type Dashboard struct {
	UserStatus         UserStatus            `json:"userStatus"`
	DailySetPromotions map[string][]Activity `json:"dailySetPromotions"`
	MorePromotions     []Activity            `json:"morePromotions"`
	PunchCards         []PunchCard           `json:"punchCards"`
}

// UserStatus carries the account's point balance.
type UserStatus struct {
	AvailablePoints int `json:"availablePoints"`
}

// PunchCard groups child activities under a parent promotion.
type PunchCard struct {
	Name            string     `json:"name"`
	ParentPromotion *Activity  `json:"parentPromotion"`
	ChildPromotions []Activity `json:"childPromotions"`
}
