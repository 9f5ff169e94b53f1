package reconcile

type Action string

const (
	NoAction       Action = "NO_ACTION"
	CreateLocal    Action = "CREATE_LOCAL"
	UpdateLocal    Action = "UPDATE_LOCAL"
	DeleteLocal    Action = "DELETE_LOCAL"
	CreateExternal Action = "CREATE_EXTERNAL"
	UpdateExternal Action = "UPDATE_EXTERNAL"
	DeleteExternal Action = "DELETE_EXTERNAL"
)

// Actions lists every action in report order.
var Actions = []Action{NoAction, CreateLocal, UpdateLocal, DeleteLocal, CreateExternal, UpdateExternal, DeleteExternal}

type Decision struct {
	Action Action
	Reason string
	// Mismatch is set when the linked external id differs from the one observed.
	Mismatch bool
}

// Classify decides what to do with one pair. member is nil when no local entity
// exists, res is nil when the external resource is absent.
func Classify(policy Policy, member *Member, res *Resource) Decision {
	local := member != nil && member.GUID != ""

	switch {
	case !local && res == nil:
		return Decision{Action: NoAction, Reason: "absent on both sides"}

	case local && res == nil:
		if member.linked() {
			if policy == ToExternal {
				return Decision{Action: CreateExternal, Reason: "linked resource missing externally, local is home"}
			}
			return Decision{Action: DeleteLocal, Reason: "linked resource deleted externally"}
		}
		if policy == FromExternal {
			return Decision{Action: NoAction, Reason: "unlinked local entity, external is home"}
		}
		return Decision{Action: CreateExternal, Reason: "local entity not yet published"}

	case !local:
		if policy == ToExternal {
			return Decision{Action: DeleteExternal, Reason: "external resource unknown locally, local is home"}
		}
		return Decision{Action: CreateLocal, Reason: "external resource unknown locally"}
	}

	if !member.linked() {
		if policy == ToExternal {
			return Decision{Action: UpdateExternal, Reason: "adopting same-named external resource"}
		}
		return Decision{Action: UpdateLocal, Reason: "adopting same-named external resource"}
	}

	corr := member.Correlation
	if corr.ExternalID != "" && res.ExternalID != "" && corr.ExternalID != res.ExternalID {
		return Decision{Action: NoAction, Reason: "external id " + res.ExternalID + " does not match linked id " + corr.ExternalID, Mismatch: true}
	}

	observed := res.effectiveTime()
	if observed == nil {
		return Decision{Action: NoAction, Reason: "external timestamps unknown"}
	}
	recorded := corr.recordedTime()
	externalNewer := recorded == nil || observed.After(*recorded)
	localNewer := !member.UpdatedAt.IsZero() && (corr.LocalSyncedAt == nil || member.UpdatedAt.After(*corr.LocalSyncedAt))

	switch {
	case externalNewer:
		if policy == ToExternal {
			return Decision{Action: UpdateExternal, Reason: "external changed, local is home"}
		}
		return Decision{Action: UpdateLocal, Reason: "external is newer"}
	case localNewer:
		if policy == FromExternal {
			return Decision{Action: UpdateLocal, Reason: "local changed, external is home"}
		}
		return Decision{Action: UpdateExternal, Reason: "local is newer"}
	default:
		return Decision{Action: NoAction, Reason: "in sync"}
	}
}
