package framework

import "context"

// KernelSpec describes a kernel the session can start.
type KernelSpec struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Language    string `json:"language" yaml:"language"`
}

// KernelRequest asks the session to switch kernels. Seq is a monotonic
// request number assigned by the manager; sessions echo it back on the
// confirming KernelChange.
type KernelRequest struct {
	Name string `json:"name"`
	Seq  uint64 `json:"seq,omitempty"`
}

// KernelChange reports that the session switched kernels. An empty Name
// means the kernel was shut down. Seq is zero for changes the manager did not
// request.
type KernelChange struct {
	Name string `json:"name"`
	Seq  uint64 `json:"seq,omitempty"`
}

// SessionProvider is the host session a document runs against.
// ChangeKernel only requests a switch; the outcome arrives later through the
// kernel-changed subscription.
type SessionProvider interface {
	KernelSpecs() map[string]KernelSpec
	ChangeKernel(ctx context.Context, req KernelRequest) error
	SubscribeKernelChanged(fn func(KernelChange)) (cancel func())
}
