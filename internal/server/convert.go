package server

import (
	"encoding/json"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

type jobSummary struct {
	JobID     string              `json:"job_id"`
	Status    string              `json:"status"`
	ExamMode  string              `json:"exam_mode"`
	StudentID string              `json:"student_id,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt string              `json:"created_at,omitempty"`
	UpdatedAt string              `json:"updated_at,omitempty"`
	Result    *entity.FinalResult `json:"result,omitempty"`
}

type statusView struct {
	JobID             string   `json:"job_id"`
	Status            string   `json:"status"`
	Stage             string   `json:"stage"`
	ExamMode          string   `json:"exam_mode"`
	CompletedSections []string `json:"completed_sections"`
	Error             string   `json:"error,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
}

type checkpointView struct {
	JobID             string   `json:"job_id"`
	Stage             string   `json:"stage"`
	ExamMode          string   `json:"exam_mode"`
	ExamID            string   `json:"exam_id,omitempty"`
	CompletedSections []string `json:"completed_sections"`
	HasOCR            bool     `json:"has_ocr_text"`
	SectionsAvailable []string `json:"sections_available"`
	LastError         string   `json:"last_error,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
}

func jobView(j entity.Job) jobSummary {
	return jobSummary{
		JobID:     j.ID,
		Status:    string(j.Status),
		ExamMode:  string(j.Mode),
		StudentID: j.StudentID,
		Error:     j.Error,
		CreatedAt: timestamp(j.CreatedAt),
		UpdatedAt: timestamp(j.UpdatedAt),
		Result:    j.Result,
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}

// FromStruct decodes a Struct into a Go value through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func stringList(s *structpb.Struct, key string) []string {
	if s == nil {
		return nil
	}
	vals := s.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if str := v.GetStringValue(); str != "" {
			out = append(out, str)
		}
	}
	return out
}
