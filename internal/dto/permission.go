package dto

type PermissionRequest struct {
	Permissions []string `json:"permissions" binding:"required,min=1,dive,required"`
}

type PermissionResponse struct {
	OwnerID     string   `json:"owner_id"`
	Permissions []string `json:"permissions"`
}
