package synch

import "github.com/me/kthreads/internal/thread"

// SelfTestRounds is the number of ping-pong rounds SelfTest plays.
const SelfTestRounds = 10

// SelfTest plays semaphore ping-pong between the running thread and a
// helper thread. It returns once both sides finished every round.
func SelfTest(k Kernel) error {
	ping, pong := NewSemaphore(k, 0), NewSemaphore(k, 0)
	_, err := k.Create("sema-test", thread.PriDefault, func(any) {
		for i := 0; i < SelfTestRounds; i++ {
			ping.Down()
			pong.Up()
		}
	}, nil)
	if err != nil {
		return err
	}
	for i := 0; i < SelfTestRounds; i++ {
		ping.Up()
		pong.Down()
	}
	return nil
}
