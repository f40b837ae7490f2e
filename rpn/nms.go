package rpn

import "github.com/nvr-ai/go-frcnn/boxes"

// NonMaxSuppress performs greedy Non-Maximum Suppression over proposals
// already sorted by descending score.
//
// The highest-scoring remaining proposal is emitted, every later proposal
// whose IoU with it exceeds the threshold is suppressed, and the scan
// repeats until the input is exhausted or maxOutput proposals have been
// emitted. Because the input order is preserved, exact score ties keep
// their original (anchor-index) order in the output.
//
// Arguments:
//   - proposals: Proposals sorted by descending score.
//   - iouThreshold: Overlap above which a lower-scored proposal is removed.
//   - maxOutput: Cap on the number of emitted proposals; <= 0 means no cap.
//
// Returns:
//   - The surviving proposals, in input order.
func NonMaxSuppress(proposals []Proposal, iouThreshold float32, maxOutput int) []Proposal {
	n := len(proposals)
	if n == 0 {
		return nil
	}
	if maxOutput <= 0 || maxOutput > n {
		maxOutput = n
	}

	kept := make([]Proposal, 0, maxOutput)
	suppressed := make([]bool, n)

	for i := 0; i < n && len(kept) < maxOutput; i++ {
		if suppressed[i] {
			continue
		}
		kept = append(kept, proposals[i])

		for j := i + 1; j < n; j++ {
			if suppressed[j] {
				continue
			}
			if boxes.IoU(proposals[i].Box, proposals[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
