//go:build !darwin && !linux

package storage

func journalFilesystem(string) (string, error) {
	return "", errFilesystemUnknown
}
