package domain

// RenameKey is the hash input for one file rename attempt.
// A fresh key is built for every attempt and never persisted.
type RenameKey struct {
	Path      string
	Timestamp string
	Salt      string
	Algorithm string
}

// Payload returns the bytes fed to the hash: path, timestamp and salt concatenated
func (k RenameKey) Payload() []byte {
	return []byte(k.Path + k.Timestamp + k.Salt)
}

// TimestampLayout formats a timestamp as YYYY-MM-DD HH:MM:SS.ffffff
const TimestampLayout = "2006-01-02 15:04:05.000000"
