// Package authz decides which role may perform which action on which complaint.
//
// Decisions are made in two steps. Permits answers from the role alone and runs
// before any data is loaded, so a caller whose role can never perform an action
// learns nothing about whether the target exists. Authorize then applies the
// ownership rules to the loaded complaint.
package authz

import "citizen-voice/internal/model"

type Action string

const (
	ActionView               Action = "view"
	ActionList               Action = "list"
	ActionCreate             Action = "create"
	ActionUpdate             Action = "update"
	ActionUpdateStatus       Action = "update_status"
	ActionRespond            Action = "respond"
	ActionViewStatus         Action = "view_status"
	ActionViewProfile        Action = "view_profile"
	ActionUpdateProfile      Action = "update_profile"
	ActionManageInstitutions Action = "manage_institutions"
	ActionViewAudit          Action = "view_audit"
)

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) Permits(claims *model.AuthClaims, action Action) Decision {
	if claims == nil || claims.UserID == "" {
		return deny("not authenticated")
	}

	switch claims.Role {
	case model.RoleAdmin:
		return allow()
	case model.RoleInstitution:
		switch action {
		case ActionView, ActionList, ActionUpdate, ActionUpdateStatus, ActionRespond,
			ActionViewStatus, ActionViewProfile, ActionUpdateProfile:
			return allow()
		}
		return deny("institutions cannot perform " + string(action))
	case model.RoleCitizen:
		switch action {
		case ActionView, ActionList, ActionCreate, ActionRespond,
			ActionViewStatus, ActionViewProfile, ActionUpdateProfile:
			return allow()
		case ActionUpdate, ActionUpdateStatus:
			return deny("citizens cannot update complaint status; contact the assigned institution")
		}
		return deny("citizens cannot perform " + string(action))
	case model.RolePendingInstitution:
		if action == ActionViewStatus {
			return allow()
		}
		return deny("institution account is awaiting approval")
	default:
		return deny("unknown role")
	}
}

// Authorize applies the role check and then the ownership rules for complaint.
func (g *Gate) Authorize(claims *model.AuthClaims, action Action, complaint *model.Complaint) Decision {
	if d := g.Permits(claims, action); !d.Allowed {
		return d
	}

	switch action {
	case ActionView, ActionUpdate, ActionUpdateStatus, ActionRespond:
	default:
		return allow()
	}

	if complaint == nil {
		return deny("no complaint to authorize against")
	}

	switch claims.Role {
	case model.RoleAdmin:
		return allow()
	case model.RoleInstitution:
		if complaint.AssignedAgency != "" && complaint.AssignedAgency == claims.UserID {
			return allow()
		}
		return deny("complaint is not assigned to your institution")
	case model.RoleCitizen:
		if complaint.CitizenID == claims.UserID {
			return allow()
		}
		return deny("you can only access your own complaints")
	case model.RolePendingInstitution:
		return deny("institution account is awaiting approval")
	default:
		return deny("unknown role")
	}
}

// ListFilter returns the ownership constraints a listing must be narrowed to.
func (g *Gate) ListFilter(claims *model.AuthClaims) (model.ComplaintFilter, Decision) {
	if d := g.Permits(claims, ActionList); !d.Allowed {
		return model.ComplaintFilter{}, d
	}

	switch claims.Role {
	case model.RoleAdmin:
		return model.ComplaintFilter{}, allow()
	case model.RoleInstitution:
		return model.ComplaintFilter{AssignedAgency: claims.UserID}, allow()
	case model.RoleCitizen:
		return model.ComplaintFilter{CitizenID: claims.UserID}, allow()
	case model.RolePendingInstitution:
		return model.ComplaintFilter{}, deny("institution account is awaiting approval")
	default:
		return model.ComplaintFilter{}, deny("unknown role")
	}
}
