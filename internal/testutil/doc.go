// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by modlink tests: environment and
// directory helpers that fail the test on error (MustSetenv, MustChdir,
// MustWriteFile), module fixture builders (WriteModule, WriteZipModule,
// ModuleTree) and a process-wide semaphore for container-backed tests.
package testutil
