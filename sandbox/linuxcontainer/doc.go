// Package linuxcontainer implements sandbox environments as Linux
// containers: unshared namespaces, a mount-restricted filesystem view with
// a tmpfs scratch directory, optional seccomp filter and cgroup enforced
// resource limits with a whole-tree kill path.
package linuxcontainer
