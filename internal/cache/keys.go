package cache

import "fmt"

// UsageStatsKey scopes the cached stats payload to the UTC day its windows end on.
func UsageStatsKey(day string) string {
	return fmt.Sprintf("apihub:stats:usage:%s", day)
}
