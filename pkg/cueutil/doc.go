// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides the shared CUE decoding flow used for module
// descriptors, the pre-linked module table and the modlink configuration.
//
// Every document goes through the same three steps:
//
//  1. Compile the embedded schema
//  2. Compile the document and unify it with the schema definition
//  3. Validate and decode into a Go struct
//
// # Usage
//
//	//go:embed module_schema.cue
//	var schema []byte
//
//	result, err := cueutil.ParseAndDecode[Descriptor](
//	    schema,
//	    data,
//	    "#Module",
//	    cueutil.WithFilename("module.cue"),
//	)
//	if err != nil {
//	    return nil, err // carries the CUE path of the offending field
//	}
//	return result.Value, nil
//
// JSON is a subset of CUE, so machine-written JSON documents (such as the
// module table of a linked image) decode through the same entry point.
package cueutil
