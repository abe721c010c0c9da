package dto

// UpdateProfileRequest edits the instructor's display profile.
type UpdateProfileRequest struct {
	FullName string  `json:"full_name" validate:"required"`
	SchoolID *string `json:"school_id"`
}
