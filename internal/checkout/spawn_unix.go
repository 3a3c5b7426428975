//go:build unix

package checkout

import (
	"os/exec"
	"syscall"
)

// detach 让 worker 进入新会话，服务进程退出或收到信号时 worker 不受影响。
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
