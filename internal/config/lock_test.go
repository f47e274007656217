package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gasdevtools/gas-sync/internal/types"
)

func TestConfigLock(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ConfigLock Suite")
}

var _ = Describe("ConfigLock", func() {
	var configPath string

	BeforeEach(func() {
		configPath = filepath.Join(GinkgoT().TempDir(), "config.json")
	})

	It("serializes concurrent WithLock calls so no two run at once", func() {
		lock := NewLock(configPath)
		var inCriticalSection atomic.Bool
		var overlapDetected atomic.Bool

		run := func(done chan<- struct{}) {
			err := lock.WithLock(context.Background(), "test-op", time.Second, func() error {
				if !inCriticalSection.CompareAndSwap(false, true) {
					overlapDetected.Store(true)
				}
				time.Sleep(20 * time.Millisecond)
				inCriticalSection.Store(false)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			close(done)
		}

		doneA := make(chan struct{})
		doneB := make(chan struct{})
		go run(doneA)
		go run(doneB)

		Eventually(doneA, 2*time.Second).Should(BeClosed())
		Eventually(doneB, 2*time.Second).Should(BeClosed())
		Expect(overlapDetected.Load()).To(BeFalse())
	})

	It("reclaims a lock whose holder process is dead", func() {
		lock := NewLock(configPath)
		lock.PollInterval = 10 * time.Millisecond

		stale := types.LockFileContent{
			Holder:     "old-op@" + hostnameOrEmpty(),
			PID:        deadPID(),
			Hostname:   hostnameOrEmpty(),
			AcquiredAt: time.Now().UTC().Add(-time.Hour),
			ExpiresAt:  time.Now().UTC().Add(time.Hour), // not yet expired by time alone
			Operation:  "old-op",
		}
		writeRawLock(lock.path, stale)

		ran := false
		err := lock.WithLock(context.Background(), "new-op", 2*time.Second, func() error {
			ran = true
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ran).To(BeTrue())
	})

	It("times out with a LockTimeout error when the holder never releases", func() {
		lock := NewLock(configPath)
		lock.PollInterval = 10 * time.Millisecond

		held := types.LockFileContent{
			Holder:     "other-op@" + hostnameOrEmpty(),
			PID:        os.Getpid(), // this test process - alive, so never stale
			Hostname:   hostnameOrEmpty(),
			AcquiredAt: time.Now().UTC(),
			ExpiresAt:  time.Now().UTC().Add(time.Hour),
			Operation:  "other-op",
		}
		writeRawLock(lock.path, held)

		err := lock.WithLock(context.Background(), "blocked-op", 50*time.Millisecond, func() error {
			return nil
		})
		Expect(err).To(HaveOccurred())
	})

	It("removes the lock file on normal release", func() {
		lock := NewLock(configPath)
		err := lock.WithLock(context.Background(), "op", time.Second, func() error { return nil })
		Expect(err).NotTo(HaveOccurred())

		_, statErr := os.Stat(lock.path)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})
})

func hostnameOrEmpty() string {
	h, _ := os.Hostname()
	return h
}

// deadPID returns a PID that (almost certainly) does not correspond to a
// live process, for exercising the staleness probe.
func deadPID() int {
	return 1 << 30
}

func writeRawLock(path string, content types.LockFileContent) {
	data, err := json.Marshal(content)
	Expect(err).NotTo(HaveOccurred())
	Expect(os.WriteFile(path, data, 0o600)).To(Succeed())
}
