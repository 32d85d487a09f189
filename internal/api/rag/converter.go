package rag

import "github.com/futig/zoning-qa/internal/entity"

func toIngestRequest(municipalityID string, body *entity.IngestDocumentBody) *entity.IngestDocumentRequest {
	return &entity.IngestDocumentRequest{
		MunicipalityID: municipalityID,
		DocumentTitle:  body.Title,
		RawText:        body.Text,
		Phase:          body.Phase,
	}
}

func toIngestResponse(res *entity.IngestResult) *entity.IngestDocumentResponse {
	return &entity.IngestDocumentResponse{
		RunID:         res.RunID,
		ChunksCreated: res.ChunksCreated,
		Phase:         res.Phase,
	}
}

func toAskOptions(body *entity.AskQuestionBody) entity.AskOptions {
	return entity.AskOptions{
		Phase:   body.Phase,
		TopK:    body.TopK,
		Verbose: body.Verbose,
	}
}
