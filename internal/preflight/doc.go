// Package preflight validates the environment before the pipeline starts:
// directory access, free disk space, the transform binary, the calibration
// file, and the mail relay credentials. Failures here are configuration
// problems and abort startup rather than surfacing later as mid-survey
// retries.
package preflight
