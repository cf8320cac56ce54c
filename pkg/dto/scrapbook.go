package dto

import "github.com/dimitrije/snapbook/internal/models"

type CreateScrapbookRequest struct {
	Title string `json:"title"`
}

type UpdateTitleRequest struct {
	Title string `json:"title"`
}

type UpdateTitleResponse struct {
	Timeline models.TimelineEntry `json:"timeline"`
}

type AddItemRequest struct {
	Type     models.ItemType `json:"type"`
	Content  string          `json:"content"`
	Position models.Position `json:"position"`
}

type AddItemResponse struct {
	NewItem  models.Item          `json:"newItem"`
	Timeline models.TimelineEntry `json:"timeline"`
}

type RemoveItemResponse struct {
	Timeline models.TimelineEntry `json:"timeline"`
}

type AddCollaboratorRequest struct {
	Username string `json:"username"`
}

type AddCollaboratorResponse struct {
	Collaborator models.User          `json:"collaborator"`
	Timeline     models.TimelineEntry `json:"timeline"`
}

type RemoveCollaboratorResponse struct {
	Timeline models.TimelineEntry `json:"timeline"`
}

type UploadResponse struct {
	URI string `json:"uri"`
}

type DeleteFileRequest struct {
	URI string `json:"uri"`
}
