//go:build !unix

package lttd

import "os"

func interrupted(error) bool {
	return false
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
