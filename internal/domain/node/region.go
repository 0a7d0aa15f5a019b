package node

import "strings"

// NormalizeRegion reduces a voice-platform region name to the coarse tag used
// for node selection: the "vip-" marker is dropped and everything from the
// first hyphen on is cut ("vip-us-east" -> "us", "eu-west" -> "eu").
func NormalizeRegion(region string) string {
	region = strings.ReplaceAll(region, "vip-", "")
	if i := strings.IndexByte(region, '-'); i >= 0 {
		region = region[:i]
	}
	return region
}
