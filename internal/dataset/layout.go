package dataset

import (
	"path"
	"strings"
)

// Object store layout. Everything keyed by fingerprint is immutable once written.
const (
	RawPrefix       = "raw/"
	ProcessedPrefix = "processed/"
	InboxPrefix     = "inbox/"

	// TableKey holds the authoritative cumulative dataset.
	TableKey = "table/trials.json"
	// CSVKey holds a derived CSV projection of TableKey.
	CSVKey = "table/trials.csv"

	summaryFile  = "summary.txt"
	formDataFile = "form_data.json"
	rawPDFFile   = "raw.pdf"
)

// RawKey is where the uploaded bytes are kept under their display name.
func RawKey(fingerprint, displayName string) string {
	return RawPrefix + fingerprint + "/" + SafeName(displayName)
}

// RawPDFKey is the copy of the source kept alongside the processed artifact.
func RawPDFKey(fingerprint string) string {
	return ProcessedPrefix + fingerprint + "/" + rawPDFFile
}

// FormDataKey holds the flattened extraction output.
func FormDataKey(fingerprint string) string {
	return ProcessedPrefix + fingerprint + "/" + formDataFile
}

// SummaryKey holds the summary text. Its existence marks the artifact as committed.
func SummaryKey(fingerprint string) string {
	return ProcessedPrefix + fingerprint + "/" + summaryFile
}

// FingerprintFromSummaryKey extracts the fingerprint from a commit marker key.
func FingerprintFromSummaryKey(key string) (string, bool) {
	if !strings.HasPrefix(key, ProcessedPrefix) || !strings.HasSuffix(key, "/"+summaryFile) {
		return "", false
	}
	fp := strings.TrimSuffix(strings.TrimPrefix(key, ProcessedPrefix), "/"+summaryFile)
	if fp == "" || strings.Contains(fp, "/") {
		return "", false
	}
	return fp, true
}

// SafeName reduces a client supplied filename to a single path element.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "upload.pdf"
	}
	return name
}
