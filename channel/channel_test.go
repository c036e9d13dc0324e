package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveOrder(t *testing.T) {
	c := New[int]()
	for i := 0; i < 10; i++ {
		c.Send(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := c.Receive()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestReceiveBlocksUntilSend(t *testing.T) {
	c := New[string]()
	got := make(chan string)
	go func() {
		v, _ := c.Receive()
		got <- v
	}()

	time.Sleep(50 * time.Millisecond)
	c.Send("ping")

	select {
	case v := <-got:
		assert.Equal(t, "ping", v)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken by the send")
	}
}

func TestCloseDrainsBeforeExhaustion(t *testing.T) {
	c := New[int]()
	c.Send(1)
	c.Send(2)
	c.Close()

	v, ok := c.Receive()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = c.Receive()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = c.Receive()
	assert.False(t, ok)
}

func TestCloseWakesBlockedReceivers(t *testing.T) {
	c := New[int]()
	done := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, ok := c.Receive()
			done <- ok
		}()
	}

	time.Sleep(50 * time.Millisecond)
	c.Close()

	for i := 0; i < 2; i++ {
		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("a blocked receiver was not woken by the close")
		}
	}
}

func TestCloseIsIdempotentAndSendAfterCloseIsHarmless(t *testing.T) {
	c := New[int]()
	c.Close()
	c.Close()

	assert.NotPanics(t, func() { c.Send(7) })
	v, ok := c.Receive()
	assert.True(t, ok)
	assert.Equal(t, 7, v)
	_, ok = c.Receive()
	assert.False(t, ok)
}

func TestConcurrentProducers(t *testing.T) {
	c := New[int]()
	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				c.Send(i)
			}
		}()
	}
	wg.Wait()
	c.Close()

	count := 0
	for {
		_, ok := c.Receive()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}
