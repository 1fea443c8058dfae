//go:build !linux

package storage

func filesystemType(string) (string, bool, error) {
	return "", false, errDetectUnsupported
}
