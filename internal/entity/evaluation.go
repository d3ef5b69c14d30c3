package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Mark is a score read leniently from model output: numbers and numeric
// strings decode to their value, anything else decodes to zero.
type Mark float64

func (m *Mark) UnmarshalJSON(b []byte) error {
	*m = 0
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*m = Mark(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*m = Mark(v)
		}
	}
	return nil
}

// Text is a free-text field that tolerates non-string JSON values.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*t = ""
		return nil
	}
	*t = Text(bytes.TrimSpace(b))
	return nil
}

// Subdivision is one part of a multi-part question, e.g. (a)(i).
type Subdivision struct {
	MarksAwarded *Mark `json:"marks_awarded,omitempty"`
	MaxMarks     *Mark `json:"max_marks,omitempty"`
	Remarks      Text  `json:"remarks,omitempty"`
}

// Subdivisions drops entries that are not objects instead of failing.
type Subdivisions map[string]Subdivision

func (s *Subdivisions) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		*s = nil
		return nil
	}
	out := make(Subdivisions, len(raw))
	for k, v := range raw {
		var sub Subdivision
		if err := json.Unmarshal(v, &sub); err == nil {
			out[k] = sub
		}
	}
	*s = out
	return nil
}

// QuestionEvaluation is one question's scoring as returned by the model.
// Several field spellings are accepted for the awarded and maximum marks.
type QuestionEvaluation struct {
	ID            string       `json:"-"`
	QuestionTotal *Mark        `json:"question_total,omitempty"`
	TotalAwarded  *Mark        `json:"total_awarded,omitempty"`
	MarksAwarded  *Mark        `json:"marks_awarded,omitempty"`
	Awarded       *Mark        `json:"awarded,omitempty"`
	QuestionMax   *Mark        `json:"question_max,omitempty"`
	MaxMarks      *Mark        `json:"max_marks,omitempty"`
	Max           *Mark        `json:"max,omitempty"`
	Remarks       Text         `json:"remarks,omitempty"`
	Feedback      Text         `json:"feedback,omitempty"`
	Subdivisions  Subdivisions `json:"subdivisions,omitempty"`
}

// Total is the first explicit total present, else the sum of sub-parts.
func (q QuestionEvaluation) Total() float64 {
	for _, m := range []*Mark{q.QuestionTotal, q.TotalAwarded, q.MarksAwarded, q.Awarded} {
		if m != nil {
			return float64(*m)
		}
	}
	var sum float64
	for _, sub := range q.Subdivisions {
		if sub.MarksAwarded != nil {
			sum += float64(*sub.MarksAwarded)
		}
	}
	return sum
}

// MaxOr is the first explicit maximum present, else def.
func (q QuestionEvaluation) MaxOr(def float64) float64 {
	for _, m := range []*Mark{q.QuestionMax, q.MaxMarks, q.Max} {
		if m != nil {
			return float64(*m)
		}
	}
	return def
}

// Comment prefers remarks over feedback.
func (q QuestionEvaluation) Comment() string {
	if q.Remarks != "" {
		return string(q.Remarks)
	}
	return string(q.Feedback)
}

// QuestionList keeps questions in the order the model presented them, which
// decides ties when retaining the best answers.
type QuestionList []QuestionEvaluation

func (l QuestionList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, q := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(q.ID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(q)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of questions in key order. Values that are
// not objects become zero-score questions; a non-object list decodes empty.
func (l *QuestionList) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		*l = nil
		return nil
	}
	var out QuestionList
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var q QuestionEvaluation
		if err := json.Unmarshal(raw, &q); err != nil {
			q = QuestionEvaluation{}
		}
		q.ID = key
		out = append(out, q)
	}
	*l = out
	return nil
}

// SectionEvaluation is the model's view of one section. Retained and
// SectionTotal are informational; aggregation recomputes both.
type SectionEvaluation struct {
	Questions    QuestionList `json:"questions"`
	Retained     []string     `json:"retained,omitempty"`
	SectionTotal *Mark        `json:"section_total,omitempty"`
}

func (s *SectionEvaluation) UnmarshalJSON(b []byte) error {
	*s = SectionEvaluation{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil
	}
	if q, ok := fields["questions"]; ok {
		if err := json.Unmarshal(q, &s.Questions); err != nil {
			s.Questions = nil
		}
	}
	if r, ok := fields["retained"]; ok {
		if err := json.Unmarshal(r, &s.Retained); err != nil {
			s.Retained = nil
		}
	}
	if t, ok := fields["section_total"]; ok {
		var m Mark
		_ = json.Unmarshal(t, &m)
		s.SectionTotal = &m
	}
	return nil
}

// FinalSummary is the model's own summary; only the comment is carried into
// the final result.
type FinalSummary struct {
	TotalMarks      *Mark `json:"total_marks,omitempty"`
	MaxMarks        *Mark `json:"max_marks,omitempty"`
	Result          Text  `json:"result,omitempty"`
	ExaminerComment Text  `json:"examiner_comment,omitempty"`
}

// Evaluation is the structured reasoning result (stage-two payload).
type Evaluation struct {
	Sections map[string]SectionEvaluation `json:"section_wise_evaluation"`
	Summary  FinalSummary                 `json:"final_summary"`
	RawReply string                       `json:"raw_reply,omitempty"`
}

// UnmarshalJSON tolerates a missing or malformed section map or summary.
func (e *Evaluation) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*e = Evaluation{Sections: map[string]SectionEvaluation{}}
	if raw, ok := fields["section_wise_evaluation"]; ok {
		var sections map[string]SectionEvaluation
		if err := json.Unmarshal(raw, &sections); err == nil && sections != nil {
			e.Sections = sections
		}
	}
	if raw, ok := fields["final_summary"]; ok {
		var sum FinalSummary
		if err := json.Unmarshal(raw, &sum); err == nil {
			e.Summary = sum
		}
	}
	if raw, ok := fields["raw_reply"]; ok {
		_ = json.Unmarshal(raw, &e.RawReply)
	}
	return nil
}
