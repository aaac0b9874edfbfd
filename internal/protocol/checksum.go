package protocol

// FoldChecksums reduces a pak checksum set to the single folded word the
// pure-content handshake exchanges: the feed XOR every checksum XOR the
// count. Folding in the count means dropping a checksum cannot be hidden
// by XOR-cancelling it with a duplicate.
func FoldChecksums(feed int32, checksums []int32) int32 {
	folded := feed
	for _, c := range checksums {
		folded ^= c
	}
	return folded ^ int32(len(checksums))
}
