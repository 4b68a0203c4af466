package report

// Source and report table names of the promo usage job.
const (
	TableUsers      = "user_dataset_train_v2"
	TableUsersTest  = "user_dataset_test_v2"
	TableUsage      = "user_promo_dataset"
	TablePromoCodes = "promo_code_dataset_v2"

	TopUsers          = "top_10_users_with_highest_promocodes_usages"
	TopPromoCodes     = "top_10_promocodes_most_used"
	UsageTimeline     = "promocodes_usage_timeline"
	RegistrationsByYr = "user_registrations_timeline"
)

// Builtins returns the four standard reports in write order.
func Builtins() []Spec {
	return []Spec{
		{
			Name:   TopUsers,
			Source: TableUsage,
			Join:   &Join{Table: TableUsers, LeftKey: "user_id", RightKey: "user_id"},
			Derive: []Derive{
				{Column: "full_name", Func: FuncConcat, Args: []string{"first_name", "last_name"}, Sep: " "},
			},
			GroupBy: []string{"full_name"},
			Sort:    []SortKey{{Column: DefaultCountColumn, Desc: true}, {Column: "full_name"}},
			Limit:   10,
		},
		{
			Name:    TopPromoCodes,
			Source:  TableUsage,
			GroupBy: []string{"promo_code"},
			Sort:    []SortKey{{Column: DefaultCountColumn, Desc: true}, {Column: "promo_code"}},
			Limit:   10,
		},
		{
			Name:    UsageTimeline,
			Source:  TableUsage,
			Derive:  []Derive{{Column: "year", Func: FuncYear, Args: []string{"used_at"}}},
			GroupBy: []string{"year"},
			Sort:    []SortKey{{Column: "year", Desc: true}},
		},
		{
			Name:    RegistrationsByYr,
			Source:  TableUsers,
			Derive:  []Derive{{Column: "year", Func: FuncYear, Args: []string{"created_at"}}},
			GroupBy: []string{"year"},
			Sort:    []SortKey{{Column: "year", Desc: true}},
		},
	}
}
