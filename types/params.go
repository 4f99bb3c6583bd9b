package types

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// SearchParams drives the ensemble retriever.
type SearchParams struct {
	Query  string   `json:"query" validate:"required"`
	TopK   int      `json:"top_k" validate:"omitempty,gt=0,lte=100"`
	Tenant string   `json:"tenant"`
	DocID  string   `json:"doc_id" validate:"omitempty,uuid"`
	DocIDs []string `json:"doc_ids" validate:"omitempty,dive,uuid"`
}

// BudgetParams drives budget-bounded section retrieval.
type BudgetParams struct {
	MaxTokens     int      `json:"max_tokens" validate:"required,gt=0"`
	Prioritize    string   `json:"prioritize" validate:"omitempty,oneof=start end relevance"`
	SemanticTypes []string `json:"semantic_types"`
	PageStart     int      `json:"page_start" validate:"omitempty,gte=1"`
	PageEnd       int      `json:"page_end" validate:"omitempty,gte=1,gtefield=PageStart"`
	Query         string   `json:"query"` // required only for relevance ordering
}

// SemanticParams drives in-document semantic search.
type SemanticParams struct {
	Query     string `json:"query" validate:"required"`
	TopK      int    `json:"top_k" validate:"omitempty,gt=0,lte=50"`
	MaxTokens int    `json:"max_tokens" validate:"omitempty,gt=0"`
}

// GraphParams drives knowledge-graph retrieval.
type GraphParams struct {
	Query   string   `json:"query" validate:"required"`
	Tenant  string   `json:"tenant" validate:"required"`
	TopK    int      `json:"top_k" validate:"omitempty,gt=0,lte=100"`
	MaxHops int      `json:"max_hops" validate:"omitempty,gte=1,lte=3"`
	DocIDs  []string `json:"doc_ids" validate:"omitempty,dive,uuid"`
}

// ChunkParams fetches chunks by ID, response order following the
// request order.
type ChunkParams struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

// WorkspaceParams stores one intermediate result in the scratchpad.
type WorkspaceParams struct {
	SessionID  string `json:"session_id" validate:"required"`
	Kind       string `json:"kind" validate:"required"`
	Content    string `json:"content" validate:"required"`
	ParentID   string `json:"parent_id" validate:"omitempty,uuid"`
	TTLSeconds int    `json:"ttl_seconds" validate:"omitempty,gt=0"`
}

// ValidateStruct runs the tag-based validation shared by every params
// type, including request types declared outside this package.
func ValidateStruct(v any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(v); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (p *SearchParams) Validate() map[string]string    { return ValidateStruct(p) }
func (p *BudgetParams) Validate() map[string]string    { return ValidateStruct(p) }
func (p *SemanticParams) Validate() map[string]string  { return ValidateStruct(p) }
func (p *GraphParams) Validate() map[string]string     { return ValidateStruct(p) }
func (p *ChunkParams) Validate() map[string]string     { return ValidateStruct(p) }
func (p *WorkspaceParams) Validate() map[string]string { return ValidateStruct(p) }

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}
