package util

import "github.com/google/uuid"

// contentSpace namespaces ContentID so ids never collide with other md5 uuids
var contentSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/jpfielding/jxl.go/content"))

// ContentID is a stable uuid for a blob, used to correlate log lines about the same file
func ContentID(data []byte) string {
	return uuid.NewMD5(contentSpace, data).String()
}
