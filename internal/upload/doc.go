// Package upload moves finished assets into object storage.
//
// Coordinator speaks the tus 1.0.0 resumable protocol: it creates a session,
// sends 6 MiB chunks in order, retries transient failures on a fixed backoff
// schedule, and records each session in a SessionIndex so an interrupted
// transfer resumes from the server's acknowledged offset. DirectUploader sends
// small assets in one request.
package upload
