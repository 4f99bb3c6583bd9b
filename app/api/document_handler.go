package api

import (
	"database/sql"
	"errors"
	"strconv"

	"ragcore/hierarchy"
	"ragcore/ingest"
	"ragcore/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// DocumentHandler serves ingestion and the document-scoped hierarchical
// retrieval endpoints.
type DocumentHandler struct {
	ingest    *ingest.Service
	retriever *hierarchy.Retriever
}

func NewDocumentHandler(ingestSvc *ingest.Service, retriever *hierarchy.Retriever) *DocumentHandler {
	return &DocumentHandler{
		ingest:    ingestSvc,
		retriever: retriever,
	}
}

type IngestRequest struct {
	Tenant     string        `json:"tenant" validate:"required"`
	Title      string        `json:"title" validate:"required"`
	DocID      string        `json:"doc_id" validate:"omitempty,uuid"`
	SourceType string        `json:"source_type"`
	Provider   string        `json:"provider"`
	Confidence float64       `json:"confidence"`
	Pages      []PageRequest `json:"pages" validate:"required,min=1"`
}

type PageRequest struct {
	Number     int            `json:"number"`
	TextBlocks []string       `json:"text_blocks"`
	Tables     []TableRequest `json:"tables"`
}

type TableRequest struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

func (r *IngestRequest) Validate() map[string]string { return types.ValidateStruct(r) }

func (h *DocumentHandler) HandleIngest(c *fiber.Ctx) error {
	var req IngestRequest
	if c.BodyParser(&req) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&req); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	docID := uuid.Nil
	if req.DocID != "" {
		var err error
		if docID, err = uuid.Parse(req.DocID); err != nil {
			return ErrInvalidID()
		}
	}

	doc := types.StandardizedDocument{
		Pages: make([]types.Page, len(req.Pages)),
		Metadata: types.DocumentMetadata{
			SourceType: req.SourceType,
			Provider:   req.Provider,
			Confidence: req.Confidence,
			PageCount:  len(req.Pages),
		},
	}
	for i, p := range req.Pages {
		number := p.Number
		if number <= 0 {
			number = i + 1
		}
		page := types.Page{Number: number, TextBlocks: p.TextBlocks}
		for _, t := range p.Tables {
			page.Tables = append(page.Tables, types.Table{Headers: t.Headers, Rows: t.Rows})
		}
		doc.Pages[i] = page
	}

	result, err := h.ingest.IngestDocument(c.Context(), req.Tenant, req.Title, docID, doc)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *DocumentHandler) HandleOverview(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	overview, err := h.retriever.GetDocumentOverview(c.Context(), docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound(docID, "overview")
		}
		return err
	}
	return c.JSON(overview)
}

func (h *DocumentHandler) HandleTree(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	depth, _ := strconv.Atoi(c.Query("depth", "0"))

	tree, err := h.retriever.GetDocumentTree(c.Context(), docID, depth)
	if err != nil {
		return NewError(fiber.StatusNotFound, err.Error())
	}
	return c.JSON(tree)
}

func (h *DocumentHandler) HandleStructureByPath(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	path := c.Params("path")

	node, err := h.retriever.GetStructureByPath(c.Context(), docID, path)
	if err != nil {
		if errors.Is(err, hierarchy.ErrInvalidPath) {
			return NewError(fiber.StatusBadRequest, err.Error())
		}
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound(path, "structure node")
		}
		return err
	}
	return c.JSON(node)
}

func (h *DocumentHandler) HandleSections(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	var params types.BudgetParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	sections, err := h.retriever.GetSectionsWithinBudget(c.Context(), docID, hierarchy.BudgetOptions{
		MaxTokens:     params.MaxTokens,
		Prioritize:    params.Prioritize,
		SemanticTypes: params.SemanticTypes,
		PageStart:     params.PageStart,
		PageEnd:       params.PageEnd,
		Query:         params.Query,
	})
	if err != nil {
		if errors.Is(err, hierarchy.ErrNoEmbedder) {
			return NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return err
	}

	tokens := 0
	if len(sections) > 0 {
		tokens = sections[len(sections)-1].CumulativeTokens
	}
	return c.JSON(fiber.Map{
		"sections":    sections,
		"count":       len(sections),
		"tokens_used": tokens,
	})
}

func (h *DocumentHandler) HandleSemanticSearch(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	var params types.SemanticParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	result, err := h.retriever.SemanticSearch(c.Context(), docID, params.Query, hierarchy.SemanticOptions{
		TopK:      params.TopK,
		MaxTokens: params.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, hierarchy.ErrNoEmbedder) {
			return NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return err
	}
	return c.JSON(result)
}
