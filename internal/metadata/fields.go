// Package metadata extracts thesis metadata from the first page of a PDF.
//
// Extraction runs an ordered list of heuristic strategies over the page text.
// The first strategy that yields a value for a field wins and later
// strategies only fill gaps. Fields the heuristics cannot resolve may be
// completed by an LLM through [Fallback].
package metadata

// Required field names. Every finalized field set carries all of them.
const (
	StudentName         = "student_name"
	ThesisTitle         = "thesis_title"
	MatriculationNumber = "matriculation_number"
	StudyProgram        = "study_program"
	ExaminerFirst       = "examiner_first"
	ExaminerSecond      = "examiner_second"
	SubmissionDate      = "submission_date"
	WorkType            = "work_type"
)

// Required lists the required fields in canonical order.
var Required = []string{
	StudentName, ThesisTitle, MatriculationNumber, StudyProgram,
	ExaminerFirst, ExaminerSecond, SubmissionDate, WorkType,
}

// Work type values produced by the keyword heuristic.
const (
	WorkBachelor = "bachelor"
	WorkMaster   = "master"
	WorkSeminar  = "seminararbeit"
	WorkPraxis   = "praxisarbeit"
	WorkProjekt  = "projektarbeit"
)

// Fields maps field names to values. An empty string marks a missing field.
type Fields map[string]string

// NewFields returns a field set with every required key present and empty.
func NewFields() Fields {
	f := make(Fields, len(Required))
	for _, k := range Required {
		f[k] = ""
	}
	return f
}

// Missing returns the required fields that are empty, in canonical order.
func (f Fields) Missing() []string {
	var out []string
	for _, k := range Required {
		if f[k] == "" {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Confidence maps field names to a heuristic confidence in [0,1].
type Confidence map[string]float64

// Source values recorded alongside extracted metadata.
const (
	SourceRegex    = "regex"
	SourceRegexLLM = "regex+llm"
)

// Result is the outcome of an extraction.
type Result struct {
	Fields     Fields     `json:"metadata"`
	Confidence Confidence `json:"confidence"`
	Source     string     `json:"source"`
	// Used lists the stages that ran: "regex", and "llm" when the fallback was consulted.
	Used    []string `json:"used"`
	Missing []string `json:"missing"`
}
