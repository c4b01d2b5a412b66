package domain

// Result is the structured outcome of one download task. Downloaders never
// panic or leak errors past their boundary; every path produces a Result.
type Result struct {
	Success    bool
	OutputPath string
	Err        error
	Code       string
	Details    string
}

// Succeed builds a successful result for the written output file.
func Succeed(outputPath string) Result {
	return Result{Success: true, OutputPath: outputPath}
}

// Fail builds a failed result, deriving the code from the error.
func Fail(err error) Result {
	return Result{Success: false, Err: err, Code: CodeOf(err)}
}

// ItemError records one item's final failure in a run aggregate.
type ItemError struct {
	ItemID   string
	LessonID int64
	Message  string
	Code     string
}

// RunStats is the per-run aggregate returned by the queue.
type RunStats struct {
	Completed int
	Failed    int
	Errors    []ItemError
}
