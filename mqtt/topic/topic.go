// Package topic builds and parses the routing keys of a file transfer.
//
// A file named N is published on <FileBase>/N and acknowledged on
// <AckBase>/N. N is a plain file name: it never contains a slash.
package topic

import "strings"

// Keys holds the two topic bases of a transfer.
type Keys struct {
	FileBase string
	AckBase  string
}

// File returns the topic on which |name| is published.
func (k Keys) File(name string) string {
	return k.FileBase + "/" + name
}

// Ack returns the topic on which the receipt of |name| is acknowledged.
func (k Keys) Ack(name string) string {
	return k.AckBase + "/" + name
}

// FilePattern is the subscription matching every published file.
func (k Keys) FilePattern() string {
	return k.FileBase + "/#"
}

// AckPattern is the subscription matching every acknowledgement.
func (k Keys) AckPattern() string {
	return k.AckBase + "/#"
}

// ParseFile extracts the file name from a publish topic. It returns false
// when |t| does not match <FileBase>/<name>.
func (k Keys) ParseFile(t string) (string, bool) {
	return parse(k.FileBase, t)
}

// ParseAck extracts the file name from an acknowledgement topic.
func (k Keys) ParseAck(t string) (string, bool) {
	return parse(k.AckBase, t)
}

func parse(base, t string) (string, bool) {
	name, ok := strings.CutPrefix(t, base+"/")
	if !ok || name == "" || name == "." || name == ".." {
		return "", false
	}
	if strings.ContainsRune(name, '/') {
		return "", false
	}
	return name, true
}
