package capture

import "github.com/tphakala/livecaption/internal/errors"

// ComponentCapture identifies capture errors
const ComponentCapture = "capture"

var (
	// ErrMisalignedBlock is returned by Write when a block length is not a
	// multiple of the sample width. It means the device was opened with the
	// wrong format and is not recoverable.
	ErrMisalignedBlock = errors.NewStd("audio block is not aligned with the sample width")

	// ErrNotCapturing is returned by Wait when capture stops before enough
	// samples have arrived.
	ErrNotCapturing = errors.NewStd("capture is not running")
)

func misalignedBlockError(size int) error {
	return errors.New(ErrMisalignedBlock).
		Component(ComponentCapture).
		Category(errors.CategoryValidation).
		Context("block_bytes", size).
		Context("sample_width", SampleWidth).
		Build()
}
