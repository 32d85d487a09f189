package entity

// HTTP DTOs

type IngestDocumentBody struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Phase string `json:"phase,omitempty"`
}

type AskQuestionBody struct {
	Question string `json:"question"`
	Phase    string `json:"phase,omitempty"`
	TopK     *int   `json:"top_k,omitempty"`
	Verbose  bool   `json:"verbose,omitempty"`
}

type ActivatePhaseBody struct {
	Phase string `json:"phase"`
}

type IngestDocumentResponse struct {
	RunID         string `json:"run_id"`
	ChunksCreated int    `json:"chunks_created"`
	Phase         string `json:"phase"`
}

type ListDocumentsResponse struct {
	MunicipalityID string             `json:"municipality_id"`
	Phase          string             `json:"phase"`
	Documents      []*DocumentSummary `json:"documents"`
}

type ListPhasesResponse struct {
	Active string   `json:"active"`
	Phases []string `json:"phases"`
}

type RetirePhaseResponse struct {
	Phase         string `json:"phase"`
	ChunksDeleted int64  `json:"chunks_deleted"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
