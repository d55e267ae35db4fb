package backup

import "github.com/Ruslex1234/aws-lambda-ide-backup/pkg/storage"

// Changed reports whether the published package differs from the last
// backed-up one. No prior state counts as changed.
func Changed(last *storage.BackupState, codeSha string) bool {
	return last == nil || last.CodeSha != codeSha
}
