package execwrap_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/codspeed-runner/execwrap"
)

var _ = Describe("Command", func() {
	It("injects env on top of the inherited environment", func() {
		cmd, err := execwrap.Command(context.Background(), execwrap.Options{
			Argv: []string{"sh", "-c", "true"},
			Env:  map[string]string{"CODSPEED_RUNNER_MODE": "walltime"},
		})
		Expect(err).NotTo(HaveOccurred())

		found := false
		for _, kv := range cmd.Env {
			if kv == "CODSPEED_RUNNER_MODE=walltime" {
				found = true
			}
		}
		Expect(found).To(BeTrue())
	})

	It("rejects an empty argv", func() {
		_, err := execwrap.Command(context.Background(), execwrap.Options{})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("SystemdScope", func() {
	It("prefixes argv with a transient codspeed.slice scope", func() {
		wrapped := execwrap.SystemdScope([]string{"pytest", "bench.py"})
		Expect(wrapped).To(ContainElement("--slice=codspeed.slice"))
		Expect(wrapped[len(wrapped)-2:]).To(Equal([]string{"pytest", "bench.py"}))
	})
})

var _ = Describe("ExitCodeChannel", func() {
	It("round-trips a recorded exit code", func() {
		dir := GinkgoT().TempDir()
		ch, err := execwrap.NewExitCodeChannel(dir)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = ch.Close() }()

		script := ch.WriterScript([]string{"sh", "-c", "exit 7"})
		cmd, err := execwrap.Command(context.Background(), execwrap.Options{Argv: script})
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Run()).To(Succeed())

		code, err := ch.Read()
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(7))
	})

	It("fails to read before the channel is written", func() {
		dir := GinkgoT().TempDir()
		ch, err := execwrap.NewExitCodeChannel(dir)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = ch.Close() }()

		_, err = ch.Read()
		Expect(err).To(HaveOccurred())
	})
})
