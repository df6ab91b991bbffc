package monitor

import "golang.org/x/sys/unix"

// Each registered fd carries a 64-bit tag packing the source kind and,
// for serial sources, the port table index. Compaction after a removal
// rewrites the index part and re-registers with EPOLL_CTL_MOD.
type sourceKind uint32

const (
	kindSignal sourceKind = iota + 1
	kindHotplug
	kindControl
	kindSerial
	kindPtyMaster
)

func tag(kind sourceKind, index int) uint64 {
	return uint64(kind)<<32 | uint64(uint32(index))
}

func tagKind(t uint64) sourceKind { return sourceKind(t >> 32) }

func tagIndex(t uint64) int { return int(uint32(t)) }

type poller struct {
	fd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{fd: fd}, nil
}

func event(t uint64) unix.EpollEvent {
	return unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(t & 0xffffffff),
		Pad:    int32(t >> 32),
	}
}

func eventTag(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Pad))<<32 | uint64(uint32(ev.Fd))
}

func (p *poller) add(fd int, t uint64) error {
	ev := event(t)
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *poller) mod(fd int, t uint64) error {
	ev := event(t)
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *poller) del(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks up to timeoutMs. An interrupted wait reports zero ready
// events rather than an error.
func (p *poller) wait(events []unix.EpollEvent, timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.fd, events, timeoutMs)
	if err == unix.EINTR {
		return 0, nil
	}
	return n, err
}

func (p *poller) close() {
	if p.fd >= 0 {
		unix.Close(p.fd)
		p.fd = -1
	}
}
