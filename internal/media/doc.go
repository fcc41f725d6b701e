// Package media describes the recordings flowing through ingestion.
//
// Asset is the immutable value handed between compression and upload; FromFile
// builds one from disk and CompressedName derives the name of the MP3
// rendition. Probing lives in the ffprobe subpackage.
package media
