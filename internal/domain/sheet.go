package domain

// Sheet is a table read from a source export: the header row and the data
// rows keyed by header.
type Sheet struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// Column returns the text of one column for every row, in row order.
func (s *Sheet) Column(name string) []string {
	values := make([]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		values = append(values, row.Text(name))
	}
	return values
}
