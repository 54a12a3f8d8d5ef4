package core

import "fmt"

// ComputeStats tallies row outcomes. SuccessRate is the success percentage
// with two decimals, or "0" when there are no rows.
func ComputeStats(rows []RowResult) Stats {
	s := Stats{Total: len(rows)}
	for _, row := range rows {
		if row.Status == StatusSuccess {
			s.Success++
		} else {
			s.Error++
		}
	}
	s.SuccessRate = successRate(s.Success, s.Total)
	return s
}

func successRate(success, total int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%.2f", float64(success)/float64(total)*100)
}
