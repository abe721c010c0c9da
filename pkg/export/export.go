package export

// Sheet is the tabular content handed to the exporters: a title (rendered by
// formats that support one), ordered column headers and row values aligned
// with them.
type Sheet struct {
	Title   string
	Columns []string
	Rows    [][]string
}
