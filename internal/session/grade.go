package session

// Grade is a letter grade derived from the mean session quality.
type Grade string

const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
	GradeC      Grade = "C"
	GradeD      Grade = "D"
	GradeF      Grade = "F"
)

var gradeBands = []struct {
	min   float64
	grade Grade
}{
	{90, GradeAPlus},
	{85, GradeA},
	{80, GradeAMinus},
	{75, GradeBPlus},
	{70, GradeB},
	{65, GradeBMinus},
	{50, GradeC},
	{40, GradeD},
}

// GradeFor maps a 0-100 score to its band.
func GradeFor(score float64) Grade {
	for _, b := range gradeBands {
		if score >= b.min {
			return b.grade
		}
	}
	return GradeF
}
