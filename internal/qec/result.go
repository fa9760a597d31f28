package qec

// Code names reported in Result.Code.
const (
	CodeRepetition = "repetition"
	CodeSurfaceD3  = "surface-d3"
)

// NoGain is reported as Result.Gain when no logical failure was observed.
const NoGain = -1.0

// Result summarises one Monte-Carlo run.
type Result struct {
	Code              string  `json:"code"`
	Distance          int     `json:"distance"`
	PhysicalErrorRate float64 `json:"physical_error_rate"`
	LogicalErrorRate  float64 `json:"logical_error_rate"`
	Gain              float64 `json:"gain"`
}

func newResult(code string, distance int, physical, logical float64) Result {
	gain := NoGain
	if logical > 0 {
		gain = physical / logical
	}
	return Result{
		Code:              code,
		Distance:          distance,
		PhysicalErrorRate: physical,
		LogicalErrorRate:  logical,
		Gain:              gain,
	}
}
