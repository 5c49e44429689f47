// Package bytestore implements the flat payload file that holds externalized
// tensor bytes.
//
// A store is append-only: Writer.Append writes at the current end of file and
// returns the Range it occupies. Readers address the file by (offset, length)
// and never return partial data.
//
// Example usage:
//
//	w, err := bytestore.Create(dir, "weights.data")
//	if err != nil {
//	    return err
//	}
//	rng, err := w.Append(payload)
//	...
//	r, err := bytestore.Open(filepath.Join(dir, "weights.data"))
//	data, err := r.ReadAt(rng.Offset, rng.Length)
package bytestore
