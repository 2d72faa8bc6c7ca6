// Package fuzztests houses Go fuzz harnesses for the MAST binary format and
// the merger. They guard against panics and allocation blowups on arbitrary
// artifact bytes and check that whatever decodes also round-trips.
package fuzztests
