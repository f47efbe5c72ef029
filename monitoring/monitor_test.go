package monitoring

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/remoteport/remoteport"
)

var _ = Describe("Monitor", func() {
	var (
		m          *Monitor
		host, peer *remoteport.Session
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		m.Handler().ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		a, b := net.Pipe()
		host = remoteport.MakeBuilder().Build("Host", a)
		peer = remoteport.MakeBuilder().Build("Peer", b)

		errCh := make(chan error, 2)
		go func() { errCh <- host.Handshake() }()
		go func() { errCh <- peer.Handshake() }()
		Eventually(errCh).Should(Receive(BeNil()))
		Eventually(errCh).Should(Receive(BeNil()))

		Expect(host.Channel(1).Sync()).To(Succeed())

		m = NewMonitor().WithProfileDuration(10 * time.Millisecond)
		m.RegisterSession(host)
		m.RegisterSession(peer)
	})

	AfterEach(func() {
		host.Close()
		peer.Close()
	})

	It("should refuse a session registered twice", func() {
		Expect(func() { m.RegisterSession(host) }).To(Panic())
	})

	It("should list sessions in name order", func() {
		rec := get("/api/sessions")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var names []string
		Expect(json.Unmarshal(rec.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(Equal([]string{"Host", "Peer"}))
	})

	It("should forget unregistered sessions", func() {
		m.UnregisterSession(peer)

		Expect(get("/api/session/Peer").Code).To(Equal(http.StatusNotFound))
	})

	It("should report session stats", func() {
		rec := get("/api/session/Host")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var stats remoteport.Stats
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.Name).To(Equal("Host"))
		Expect(stats.Ready).To(BeTrue())
		Expect(stats.Channels).To(HaveLen(1))
		Expect(stats.Channels[0].Syncs).To(Equal(uint64(1)))
	})

	It("should report channel stats", func() {
		rec := get("/api/session/Host/channel/1")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var stats remoteport.ChannelStats
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.Device).To(Equal(uint32(1)))
	})

	It("should reject bad channel requests", func() {
		Expect(get("/api/session/Host/channel/x").Code).
			To(Equal(http.StatusBadRequest))
		Expect(get("/api/session/Host/channel/9").Code).
			To(Equal(http.StatusNotFound))
	})

	It("should 404 on unknown sessions", func() {
		Expect(get("/api/session/Nobody").Code).To(Equal(http.StatusNotFound))
	})

	It("should serialize session details", func() {
		rec := get("/api/session/Host/detail")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Host"))
	})

	It("should reject malformed field requests", func() {
		rec := get("/api/field/" + url.PathEscape("{not json"))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should report process resources", func() {
		rec := get("/api/resource")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var rsp resourceRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should list routes at the root", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("/api/sessions"))
	})

	It("should serve over a real listener", func() {
		addr, err := m.StartServer()
		Expect(err).NotTo(HaveOccurred())

		rsp, err := http.Get(addr + "/api/sessions")
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))

		Expect(m.StopServer(context.Background())).To(Succeed())
	})
})
