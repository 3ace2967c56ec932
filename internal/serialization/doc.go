// Package serialization implements the .pots checkpoint file format.
//
// A .pots file stores a set of named float64 tensors plus a JSON header that
// identifies the model and the training state the tensors belong to:
//
//	Format Structure:
//	  [4 bytes: Magic "POTS"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [4 bytes: Reserved]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [8 bytes: Data Size (uint64 LE)]
//	  [32 bytes: SHA-256 of header JSON + tensor data]
//	  [Header: JSON metadata]
//	  [Padding to 64-byte boundary]
//	  [Tensor data: float64 little-endian, in header order]
//
// Readers verify the checksum and validate every tensor offset before any
// tensor is materialized, so a truncated or tampered file is rejected as a
// whole.
//
// Example usage:
//
//	f := &serialization.File{
//	    Header:  serialization.Header{Architecture: "mlp_imputer", Task: "imputation"},
//	    Tensors: map[string]*tensor.Tensor{"param.fc.weight": w},
//	}
//	if err := serialization.WriteFile("model.pots", f); err != nil {
//	    return err
//	}
//
//	loaded, err := serialization.ReadFile("model.pots")
package serialization
