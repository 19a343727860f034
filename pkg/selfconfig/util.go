// Copyright (c) 2026, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package selfconfig

import "strings"

// lastSegment returns the final "/"-delimited segment of path, used to
// recover a guid or a counter name from one of the well-known prefixes
// a watch/provide callback fired under.
func lastSegment(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path
	}
	return path[i+1:]
}
